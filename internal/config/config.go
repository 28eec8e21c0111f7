package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/banana-tryon/tryon/internal/gateway"
	"github.com/banana-tryon/tryon/internal/vertex"
)

const DefaultPort = "8888"

// Config holds settings for both the proxy server and the submit client
type Config struct {
	Project         string `yaml:"project"`
	Location        string `yaml:"location"`
	Model           string `yaml:"model"`
	CredentialsJSON string `yaml:"credentials"`
	Port            string `yaml:"port"`
	Endpoint        string `yaml:"endpoint"`
	StoreURL        string `yaml:"store_url"`
	LogFile         string `yaml:"log_file"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Project:  vertex.DefaultProject,
		Location: vertex.DefaultLocation,
		Model:    vertex.DefaultModel,
		Port:     DefaultPort,
		Endpoint: gateway.DefaultEndpoint,
	}
}

// FromEnv overlays environment variables onto the defaults
func FromEnv() Config {
	c := Default()
	c.Merge(Config{
		Project:         os.Getenv("GOOGLE_CLOUD_PROJECT_ID"),
		Location:        os.Getenv("GOOGLE_CLOUD_LOCATION"),
		Model:           os.Getenv("TRYON_MODEL_ID"),
		CredentialsJSON: os.Getenv("GOOGLE_CLOUD_CREDENTIALS"),
		Port:            os.Getenv("TRYON_PORT"),
		Endpoint:        os.Getenv("TRYON_ENDPOINT"),
		StoreURL:        os.Getenv("TRYON_STORE_URL"),
		LogFile:         os.Getenv("TRYON_LOG_FILE"),
	})
	return c
}

// Load reads the environment and, when path is set, a YAML file on top
func Load(path string) (Config, error) {
	c := FromEnv()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read config file: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return c, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.Merge(file)
	return c, nil
}

// Merge copies every non-empty field of o into c
func (c *Config) Merge(o Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Project, o.Project)
	set(&c.Location, o.Location)
	set(&c.Model, o.Model)
	set(&c.CredentialsJSON, o.CredentialsJSON)
	set(&c.Port, o.Port)
	set(&c.Endpoint, o.Endpoint)
	set(&c.StoreURL, o.StoreURL)
	set(&c.LogFile, o.LogFile)
}

// ValidateServer checks the settings the proxy needs
func (c Config) ValidateServer() error {
	var errs []error
	if c.Project == "" {
		errs = append(errs, errors.New("GOOGLE_CLOUD_PROJECT_ID is required"))
	}
	if c.Location == "" {
		errs = append(errs, errors.New("GOOGLE_CLOUD_LOCATION is required"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("TRYON_MODEL_ID is required"))
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("TRYON_PORT %q is not a valid port", c.Port))
	}
	return errors.Join(errs...)
}

// SubmitURL resolves the submission endpoint. A relative endpoint is
// taken against the storefront root.
func (c Config) SubmitURL() (string, error) {
	if c.Endpoint == "" {
		return "", errors.New("TRYON_ENDPOINT is required")
	}
	ep, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("TRYON_ENDPOINT %q is not a valid URL: %w", c.Endpoint, err)
	}
	if ep.IsAbs() {
		return ep.String(), nil
	}
	if c.StoreURL == "" {
		return "", fmt.Errorf("TRYON_STORE_URL is required to resolve relative TRYON_ENDPOINT %q", c.Endpoint)
	}
	store, err := url.Parse(c.StoreURL)
	if err != nil || !store.IsAbs() {
		return "", fmt.Errorf("TRYON_STORE_URL %q is not an absolute URL", c.StoreURL)
	}
	return store.ResolveReference(ep).String(), nil
}

// Vertex returns the model client settings
func (c Config) Vertex() vertex.Config {
	return vertex.Config{
		Project:         c.Project,
		Location:        c.Location,
		Model:           c.Model,
		CredentialsJSON: c.CredentialsJSON,
	}
}
