package oauth2store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of an OAuth2 config document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatForURL picks the document format from the URL's extension.
func FormatForURL(docURL string) Format {
	switch strings.ToLower(filepath.Ext(docURL)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// FetchDocument downloads a config document. Bare filesystem paths are
// treated as file URLs.
func FetchDocument(ctx context.Context, fs afs.Service, docURL string) ([]byte, error) {
	if !strings.Contains(docURL, "://") {
		abs, err := filepath.Abs(docURL)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", docURL, err)
		}

		docURL = "file://" + abs
	}

	data, err := fs.DownloadWithURL(ctx, docURL)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", docURL, err)
	}

	return data, nil
}

// document is the OAuth2 config: providers, client settings referencing a
// provider, and gadget bindings assigning a client to a service name.
type document struct {
	Providers      map[string]providerDoc `json:"providers" yaml:"providers"`
	Clients        map[string]clientDoc   `json:"clients" yaml:"clients"`
	GadgetBindings map[string]bindingDoc  `json:"gadgetBindings" yaml:"gadgetBindings"`
}

type providerDoc struct {
	ClientAuthentication    string       `json:"client_authentication" yaml:"client_authentication"`
	UsesAuthorizationHeader flexBool     `json:"usesAuthorizationHeader" yaml:"usesAuthorizationHeader"`
	UsesURLParameter        flexBool     `json:"usesUrlParameter" yaml:"usesUrlParameter"`
	Endpoints               endpointsDoc `json:"endpoints" yaml:"endpoints"`

	// Endpoints may also be given at the top level of the provider.
	AuthorizationURL string `json:"authorizationUrl" yaml:"authorizationUrl"`
	TokenURL         string `json:"tokenUrl" yaml:"tokenUrl"`
}

type endpointsDoc struct {
	AuthorizationURL string `json:"authorizationUrl" yaml:"authorizationUrl"`
	TokenURL         string `json:"tokenUrl" yaml:"tokenUrl"`
}

func (p providerDoc) authorizationURL() string {
	if p.Endpoints.AuthorizationURL != "" {
		return p.Endpoints.AuthorizationURL
	}

	return p.AuthorizationURL
}

func (p providerDoc) tokenURL() string {
	if p.Endpoints.TokenURL != "" {
		return p.Endpoints.TokenURL
	}

	return p.TokenURL
}

type clientDoc struct {
	ProviderName   string   `json:"providerName" yaml:"providerName"`
	Type           string   `json:"type" yaml:"type"`
	GrantType      string   `json:"grant_type" yaml:"grant_type"`
	ClientID       string   `json:"client_id" yaml:"client_id"`
	ClientSecret   string   `json:"client_secret" yaml:"client_secret"`
	RedirectURI    string   `json:"redirect_uri" yaml:"redirect_uri"`
	SharedToken    flexBool `json:"sharedToken" yaml:"sharedToken"`
	AllowedDomains []string `json:"allowedDomains" yaml:"allowedDomains"`
}

type bindingDoc struct {
	ClientName          string   `json:"clientName" yaml:"clientName"`
	AllowModuleOverride flexBool `json:"allowModuleOverride" yaml:"allowModuleOverride"`
	CallerURI           string   `json:"callerUri" yaml:"callerUri"`
}

// flexBool accepts a boolean or the strings "true" and "false". Older
// config files quote their booleans.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		return b.set(s)
	}

	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	*b = flexBool(v)

	return nil
}

func (b *flexBool) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a boolean", node.Line)
	}

	return b.set(node.Value)
}

func (b *flexBool) set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*b = false
		return nil
	}

	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean %q", s)
	}

	*b = flexBool(v)

	return nil
}

func parseDocument(data []byte, format Format) (*document, error) {
	doc := &document{}

	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}

	var err error
	if format == FormatYAML {
		err = yaml.Unmarshal(data, doc)
	} else {
		err = json.Unmarshal(data, doc)
	}

	if err != nil {
		return nil, err
	}

	return doc, nil
}
