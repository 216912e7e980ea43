package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultServer = "http://localhost:8090"

// clientConfig is the YAML client configuration
type clientConfig struct {
	Server string `yaml:"server"`
}

// resolveServer picks the service URL: flag, then environment, then
// the configuration file, then the default.
func resolveServer() (string, error) {
	if serverURL != "" {
		return serverURL, nil
	}
	if env := os.Getenv("DCCCTL_SERVER"); env != "" {
		return env, nil
	}

	path := configFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return defaultServer, nil
		}
		path = filepath.Join(home, ".config", "dccctl", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && configFile == "" {
			return defaultServer, nil
		}
		return "", fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg clientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Server == "" {
		return defaultServer, nil
	}
	return cfg.Server, nil
}

// call performs one GET request against the service and returns the
// response body. Non-2xx answers become errors carrying the server's
// message.
func call(path string, params url.Values) ([]byte, error) {
	server, err := resolveServer()
	if err != nil {
		return nil, err
	}

	endpoint := server + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotModified {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return body, nil
}

// printJSON pretty-prints a JSON response body
func printJSON(body []byte) error {
	if len(body) == 0 {
		fmt.Println("not modified")
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		// Not JSON: print as is.
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
