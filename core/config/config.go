package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

//go:embed default/config.yaml
var defaultConfigData []byte

const (
	ConfigurationName = "config.yaml"
	AppLogName        = "events.log"
	PrivateKeyName    = "host_key"
)

type Configuration struct {
	configurationDir string
	configFs         afero.Fs

	// Prompt is the fallback prompt when PS1 is unset.
	Prompt string `json:"prompt"`

	// DefaultPath is the search path for sessions without a PATH value.
	DefaultPath string `json:"default_path" validate:"required"`

	SSHPort   int    `json:"ssh_port" validate:"gte=0,lte=65535"`
	SSHBanner string `json:"ssh_banner"`

	// SessionRateLimit caps session output in bytes per second; zero
	// disables limiting.
	SessionRateLimit int64 `json:"session_rate_limit" validate:"gte=0"`

	Users []User `json:"users" validate:"unique=Username,dive"`
}

type User struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	if c.configFs == nil {
		c.configFs = afero.NewBasePathFs(afero.NewOsFs(), c.configurationDir)
	}
	return c.configFs
}

// HostKeyPath returns the path of the SSH host key on the real filesystem.
func (c *Configuration) HostKeyPath() string {
	return filepath.Join(c.configurationDir, PrivateKeyName)
}

// OpenAppLog opens the event log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// ReadAppLog opens the event log for reading.
func (c *Configuration) ReadAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_RDONLY, 0600)
}

// GetPassword returns the password for the given username and whether the
// user exists.
func (c *Configuration) GetPassword(username string) (string, bool) {
	for _, u := range c.Users {
		if u.Username == username {
			return u.Password, true
		}
	}
	return "", false
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		// The default config ships with the binary; failing to parse it
		// is a build defect.
		panic(err)
	}
	return &out
}
