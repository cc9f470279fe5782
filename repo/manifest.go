// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package repo

import (
	"bufio"
	"context"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/exdb/repoload/logger"
)

// ManifestFeed resolves the working ID set from a holdings manifest:
// an HTTP resource listing one record identifier per line. Fetches
// retry with backoff; a manifest endpoint having a bad minute should
// not fail a whole run before it starts.
type ManifestFeed struct {
	URL    string
	Log    logger.Logger
	client *retryablehttp.Client
}

func NewManifestFeed(url string, log logger.Logger) *ManifestFeed {
	if log == nil {
		log = logger.NopLogger
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 4
	client.Logger = nil
	return &ManifestFeed{URL: url, Log: log, client: client}
}

// IDs fetches and parses the manifest. Lines beginning with '#' are
// comments.
func (m *ManifestFeed) IDs(ctx context.Context) ([]string, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, m.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building manifest request")
	}
	req = req.WithContext(ctx)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching holdings manifest")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetching holdings manifest: status %d", resp.StatusCode)
	}

	var ids []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading holdings manifest")
	}
	m.Log.Debugf("holdings manifest %s listed %d ids", m.URL, len(ids))
	return ids, nil
}
