package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/kasa-cloud/internal/pkg/logging"
)

var _rootCmdOpts struct {
	configFile string
	debug      bool
	username   string
	password   string
	apiHost    string
	termID     string
	useTapo    bool
}

var rootCmd = &cobra.Command{
	Use:   "kasa-cloud",
	Short: "Control TP-Link Kasa and Tapo devices through the vendor cloud",

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _rootCmdOpts.debug {
			logrus.SetLevel(logrus.DebugLevel)
		}

		return logging.Configure(viper.GetViper())
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&_rootCmdOpts.configFile, "config", "", "config file (default is $HOME/.kasa-cloud.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&_rootCmdOpts.debug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&_rootCmdOpts.username, "username", "u", "", "cloud account user name (email address)")
	rootCmd.PersistentFlags().StringVarP(&_rootCmdOpts.password, "password", "p", "", "cloud account password")
	rootCmd.PersistentFlags().StringVar(&_rootCmdOpts.apiHost, "api-host", "", "override the default cloud API host")
	rootCmd.PersistentFlags().StringVar(&_rootCmdOpts.termID, "term-id", "", "stable terminal UUID to present to the cloud")
	rootCmd.PersistentFlags().BoolVar(&_rootCmdOpts.useTapo, "include-tapo", false, "also query the Tapo cloud for devices")

	errPanic(viper.GetViper().BindPFlag("kasa.username", rootCmd.PersistentFlags().Lookup("username")))
	errPanic(viper.GetViper().BindPFlag("kasa.password", rootCmd.PersistentFlags().Lookup("password")))
	errPanic(viper.GetViper().BindPFlag("kasa.api-host", rootCmd.PersistentFlags().Lookup("api-host")))
	errPanic(viper.GetViper().BindPFlag("kasa.term-id", rootCmd.PersistentFlags().Lookup("term-id")))
	errPanic(viper.GetViper().BindPFlag("kasa.include-tapo", rootCmd.PersistentFlags().Lookup("include-tapo")))
}

func initConfig() {
	if _rootCmdOpts.configFile != "" {
		viper.SetConfigFile(_rootCmdOpts.configFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".kasa-cloud")
	}

	viper.SetEnvPrefix("KASA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logging.Logger(nil).Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}

// Execute runs the top level command tree
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.Logger(nil).WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func errPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func checkRequiredFlags(needFlags ...string) error {
	missingFlags := []string{}

	for _, f := range needFlags {
		if !viper.IsSet(f) || viper.GetString(f) == "" {
			missingFlags = append(missingFlags, f)
		}
	}

	if len(missingFlags) > 0 {
		itemPlural := "item"
		if len(missingFlags) > 1 {
			itemPlural = "items"
		}
		return fmt.Errorf("required config %s `%s` not set", itemPlural, strings.Join(missingFlags, "`, `"))
	}

	return nil
}

// promptMFACode asks the user for the verification code the cloud sent
// when it challenged the login
func promptMFACode(mfaType, username string) (string, error) {
	fmt.Fprintf(os.Stderr, "MFA challenge (%s) issued for %s\nVerification code: ", mfaType, username)

	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(code), nil
}
