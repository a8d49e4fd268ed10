package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// JoinPath joins path segments onto a base URL, normalizing slashes
func JoinPath(base string, paths ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	segments := append([]string{u.Path}, paths...)
	u.Path = path.Join(segments...)

	if len(paths) > 0 && strings.HasSuffix(paths[len(paths)-1], "/") {
		u.Path += "/"
	}

	return u.String(), nil
}

// WithParams returns rawURL with the given query parameters set,
// overwriting any parameter of the same name already present.
func WithParams(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	query := u.Query()
	for key, value := range params {
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
