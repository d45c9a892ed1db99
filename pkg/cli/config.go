package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the base configuration directory name
	DefaultBaseDir = ".ishe"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"
)

// Transport names accepted in a context.
const (
	TransportWebRTC    = "webrtc"
	TransportWebSocket = "websocket"
)

// Config represents the main configuration structure for a CLI app
type Config struct {
	// AppName is the application name (e.g., "ishe")
	AppName string `yaml:"-"`

	// CurrentContext is the name of the currently active context
	CurrentContext string `yaml:"current_context,omitempty"`

	// Contexts is a map of context name to context configuration
	Contexts map[string]*Context `yaml:"contexts,omitempty"`

	// configPath is the path to the config file
	configPath string
}

// Context is one backend account: where the server is and who we are on it.
type Context struct {
	// Name is the context name
	Name string `yaml:"name"`

	// Server is the backend base URL, e.g. http://localhost:3000
	Server string `yaml:"server"`

	// Token is the bearer access token sent to the backend
	Token string `yaml:"token,omitempty"`

	// UserName is shown in prompts until the backend knows better
	UserName string `yaml:"user_name,omitempty"`

	// Model is the realtime model (optional, uses the backend default if empty)
	Model string `yaml:"model,omitempty"`

	// Transport is webrtc (default) or websocket
	Transport string `yaml:"transport,omitempty"`

	// Timeout is the request timeout in seconds (optional)
	Timeout int `yaml:"timeout,omitempty"`

	// Extra stores additional settings
	Extra map[string]string `yaml:"extra,omitempty"`
}

// LoadConfig loads or creates configuration for the specified app
func LoadConfig(appName string) (*Config, error) {
	return LoadConfigWithPath(appName, "")
}

// LoadConfigWithPath loads configuration from a custom path
func LoadConfigWithPath(appName, customPath string) (*Config, error) {
	configPath := customPath
	if configPath == "" {
		paths, err := NewPaths(appName)
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = paths.ConfigFile()
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &Config{
		AppName:    appName,
		Contexts:   make(map[string]*Context),
		configPath: configPath,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Save()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	cfg.AppName = appName
	cfg.configPath = configPath
	return cfg, nil
}

// Save saves the configuration to disk. The file holds access tokens, so
// it is private to the user.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the config file path
func (c *Config) Path() string {
	return c.configPath
}

// Paths returns the layout rooted at the config file's directory.
func (c *Config) Paths() Paths {
	return Paths{Dir: filepath.Dir(c.configPath)}
}

// AddContext adds or replaces a context
func (c *Config) AddContext(name string, ctx *Context) error {
	if ctx.Server == "" {
		return fmt.Errorf("context %q: server is required", name)
	}
	switch ctx.Transport {
	case "", TransportWebRTC, TransportWebSocket:
	default:
		return fmt.Errorf("context %q: unknown transport %q", name, ctx.Transport)
	}
	ctx.Name = name
	ctx.Server = strings.TrimRight(ctx.Server, "/")
	c.Contexts[name] = ctx
	if c.CurrentContext == "" {
		c.CurrentContext = name
	}
	return c.Save()
}

// DeleteContext removes a context
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext sets the current context
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns a specific context
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return ctx, nil
}

// ResolveContext returns the context by name, or current context if name is empty
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name == "" {
		if c.CurrentContext == "" {
			return nil, fmt.Errorf("no current context set")
		}
		name = c.CurrentContext
	}
	return c.GetContext(name)
}

// ListContexts returns all context names, sorted
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetTransport returns the transport, defaulting to webrtc
func (ctx *Context) GetTransport() string {
	if ctx.Transport == "" {
		return TransportWebRTC
	}
	return ctx.Transport
}

// GetExtra returns an extra value for the context
func (ctx *Context) GetExtra(key string) string {
	if ctx.Extra == nil {
		return ""
	}
	return ctx.Extra[key]
}

// SetExtra sets an extra value for the context
func (ctx *Context) SetExtra(key, value string) {
	if ctx.Extra == nil {
		ctx.Extra = make(map[string]string)
	}
	ctx.Extra[key] = value
}

// MaskToken masks a token for display
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", min(len(token)-8, 16)) + token[len(token)-4:]
}
