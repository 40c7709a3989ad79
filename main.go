package main

import "github.com/jake-scott/kasa-cloud/cmd"

func main() {
	cmd.Execute()
}
