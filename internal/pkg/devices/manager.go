package devices

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jake-scott/kasa-cloud/internal/pkg/cloudapi"
	"github.com/jake-scott/kasa-cloud/internal/pkg/logging"
)

// Manager discovers the devices registered to a cloud account and
// constructs their Device representations.  When Tapo support is
// enabled a second session is held for that brand; listings are merged
// with first-seen-wins deduplication on (deviceId, childId).
type Manager struct {
	sessions []*cloudapi.Session
}

type managerConfig struct {
	host        string
	termID      string
	includeTapo bool
	mfaResolver cloudapi.MFAResolver
	sessionOpts []cloudapi.SessionOption
}

// ManagerOption adjusts Manager construction.
type ManagerOption func(*managerConfig)

// WithAPIHost overrides the default Kasa cloud host.
func WithAPIHost(host string) ManagerOption {
	return func(c *managerConfig) {
		c.host = host
	}
}

// WithTermID sets a stable terminal identifier shared by both brand
// sessions.
func WithTermID(termID string) ManagerOption {
	return func(c *managerConfig) {
		c.termID = termID
	}
}

// WithTapo additionally logs in to the Tapo cloud and merges its
// devices into listings.
func WithTapo() ManagerOption {
	return func(c *managerConfig) {
		c.includeTapo = true
	}
}

// WithMFAResolver installs the MFA challenge callback on both brand
// sessions.
func WithMFAResolver(r cloudapi.MFAResolver) ManagerOption {
	return func(c *managerConfig) {
		c.mfaResolver = r
	}
}

// WithSessionOptions passes extra options through to the underlying
// sessions.  Intended for tests.
func WithSessionOptions(opts ...cloudapi.SessionOption) ManagerOption {
	return func(c *managerConfig) {
		c.sessionOpts = append(c.sessionOpts, opts...)
	}
}

// NewManager logs in to the cloud account and returns a Manager.  A
// failed Tapo login is not fatal: the brand is logged and dropped for
// the remainder of the session.  A failed Kasa login is an error.
func NewManager(ctx context.Context, username, password string, opts ...ManagerOption) (*Manager, error) {
	var cfg managerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	sessionOpts := cfg.sessionOpts
	if cfg.termID != "" {
		sessionOpts = append(sessionOpts, cloudapi.WithTermID(cfg.termID))
	}
	if cfg.mfaResolver != nil {
		sessionOpts = append(sessionOpts, cloudapi.WithMFAResolver(cfg.mfaResolver))
	}

	kasaOpts := sessionOpts
	if cfg.host != "" {
		kasaOpts = append(kasaOpts, cloudapi.WithHost(cfg.host))
	}

	kasa, err := cloudapi.NewSession(cloudapi.KasaBrand(), kasaOpts...)
	if err != nil {
		return nil, err
	}
	if err := kasa.Login(ctx, username, password); err != nil {
		return nil, err
	}

	m := &Manager{sessions: []*cloudapi.Session{kasa}}

	if cfg.includeTapo {
		tapo, err := cloudapi.NewSession(cloudapi.TapoBrand(), sessionOpts...)
		if err == nil {
			err = tapo.Login(ctx, username, password)
		}

		if err != nil {
			logging.Logger(ctx).WithError(err).Warn("Tapo login failed, continuing with Kasa only")
		} else {
			m.sessions = append(m.sessions, tapo)
		}
	}

	return m, nil
}

// Session returns the session for the named brand, or nil.
func (m *Manager) Session(brand string) *cloudapi.Session {
	for _, s := range m.sessions {
		if s.Brand().Name == brand {
			return s
		}
	}
	return nil
}

type deviceIdentity struct {
	deviceID string
	childID  string
}

// ListDevices fetches and constructs all devices across the enabled
// brands.  Multi-outlet parents are expanded eagerly: their outlets
// are fetched concurrently and appended to the listing as independent
// devices.  The listing is materialized fresh on every call.
func (m *Manager) ListDevices(ctx context.Context) ([]*Device, error) {
	var all []*Device
	seen := map[deviceIdentity]bool{}

	add := func(d *Device) bool {
		id := deviceIdentity{deviceID: d.DeviceID, childID: d.ChildID}
		if seen[id] {
			return false
		}
		seen[id] = true
		all = append(all, d)
		return true
	}

	for _, session := range m.sessions {
		infos, err := session.DeviceList(ctx)
		if err != nil {
			return nil, err
		}

		var parents []*Device
		for _, info := range infos {
			// Each device talks to its own regional relay host
			client := session.DeviceClientFor(info.AppServerURL)
			d := NewDevice(info, session.Brand().Name, client)

			// A deduped parent's outlets were already collected via
			// the brand seen first; don't fetch them again
			if add(d) && d.HasChildren() {
				parents = append(parents, d)
			}
		}

		// Outlet fetches are independent; issue them together
		childSets := make([][]*Device, len(parents))
		g, gctx := errgroup.WithContext(ctx)
		for i, parent := range parents {
			i, parent := i, parent
			g.Go(func() error {
				children, err := parent.Children(gctx)
				if err != nil {
					return err
				}
				childSets[i] = children
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, children := range childSets {
			for _, child := range children {
				add(child)
			}
		}
	}

	return all, nil
}

// FindDevice returns the first device whose alias matches name
// exactly, or nil.
func (m *Manager) FindDevice(ctx context.Context, name string) (*Device, error) {
	devices, err := m.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	for _, d := range devices {
		if d.Alias() == name {
			return d, nil
		}
	}

	return nil, nil
}

// FindDevices returns all devices whose alias contains fragment,
// case-insensitively.
func (m *Manager) FindDevices(ctx context.Context, fragment string) ([]*Device, error) {
	devices, err := m.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	fragment = strings.ToLower(fragment)

	var matches []*Device
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Alias()), fragment) {
			matches = append(matches, d)
		}
	}

	return matches, nil
}
