/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package webexsdk carries the OAuth access token the calling application
// obtained from Webex, so it can be shared between the graphqlws signaling
// transport and (in a future REST-backed component) any other Webex API
// client, without either reading it from the other.
package webexsdk

import (
	"fmt"
	"log"
)

// Logger is the interface for SDK logging. Any logger that implements Printf
// (such as the standard library's *log.Logger) can be used.
type Logger interface {
	Printf(format string, v ...any)
}

// Client holds the access token used to authenticate Webex API calls.
type Client struct {
	accessToken string
	logger      Logger
}

// GetAccessToken returns the access token used for API authentication.
func (c *Client) GetAccessToken() string {
	return c.accessToken
}

// GetLogger returns the logger used by the SDK.
func (c *Client) GetLogger() Logger {
	return c.logger
}

// Config holds the configuration for the Webex client.
type Config struct {
	// Logger is the logger for SDK operations. If nil, the standard
	// library's default logger (log.Default()) is used.
	Logger Logger
}

// DefaultConfig returns a default configuration for the Webex client.
func DefaultConfig() *Config {
	return &Config{}
}

// NewClient creates a new Webex client with the given access token and
// optional configuration.
func NewClient(accessToken string, config *Config) (*Client, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("access token cannot be empty")
	}

	if config == nil {
		config = DefaultConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Client{
		accessToken: accessToken,
		logger:      logger,
	}, nil
}
