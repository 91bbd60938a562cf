package config

import (
	"github.com/vrischmann/envconfig"
)

// Env holds the process environment overrides. Every field is optional.
type Env struct {
	Config     string `envconfig:"WLT_CONFIG,optional"`
	Host       string `envconfig:"WLT_HOST,optional"`
	Port       uint16 `envconfig:"WLT_PORT,optional"`
	SSHPort    uint16 `envconfig:"WLT_SSH_PORT,optional"`
	SSHHostKey string `envconfig:"SSH_HOST_KEY,optional"`
	Verbose    bool   `envconfig:"WLT_VERBOSE,optional"`
}

// LoadEnv reads Env from the process environment.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Init(&env); err != nil {
		return Env{}, err
	}
	return env, nil
}

// ApplyEnv overrides file values with the non-zero fields of env.
func (c *Config) ApplyEnv(env Env) {
	if env.Host != "" {
		c.Web.Host = env.Host
	}
	if env.Port != 0 {
		c.Web.Port = env.Port
	}
	if env.SSHPort != 0 {
		c.SSH.Port = env.SSHPort
	}
	if env.SSHHostKey != "" {
		c.SSH.HostKeyPath = env.SSHHostKey
	}
	if env.Verbose {
		c.General.Verbose = true
	}
}
