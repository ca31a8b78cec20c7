package main

import (
	"github.com/spf13/cobra"

	"github.com/ggoodman/passwordgrant-go/passwordgrant"
)

const redacted = "[redacted]"

type configView struct {
	TokenEndpoint   string            `json:"token_endpoint"`
	ClientID        string            `json:"client_id"`
	ClientSecret    string            `json:"client_secret,omitempty"`
	ClientAuth      string            `json:"client_auth"`
	Scopes          []string          `json:"scopes,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	SkipUserProfile bool              `json:"skip_user_profile"`
	Timeout         string            `json:"timeout,omitempty"`
	Problems        []string          `json:"problems,omitempty"`
}

func newConfigCmd(s streams) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the configuration read from the environment, secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := passwordgrant.LoadConfigFromEnv()
			if err != nil {
				return usageErrorf("%v", err)
			}
			return writeJSON(s.out, redact(cfg))
		},
	}
}

// redact hides the client secret and every custom header value; headers
// commonly carry API keys.
func redact(cfg passwordgrant.Config) configView {
	v := configView{
		TokenEndpoint:   cfg.TokenEndpoint,
		ClientID:        cfg.ClientID,
		ClientAuth:      cfg.ClientAuth.String(),
		Scopes:          cfg.Scopes,
		SkipUserProfile: cfg.SkipUserProfile,
	}
	if cfg.ClientSecret != "" {
		v.ClientSecret = redacted
	}
	if len(cfg.CustomHeaders) > 0 {
		v.Headers = make(map[string]string, len(cfg.CustomHeaders))
		for k := range cfg.CustomHeaders {
			v.Headers[k] = redacted
		}
	}
	if cfg.HTTPClient != nil && cfg.HTTPClient.Timeout > 0 {
		v.Timeout = cfg.HTTPClient.Timeout.String()
	}
	if err := cfg.Validate(); err != nil {
		v.Problems = append(v.Problems, err.Error())
	}
	return v
}
