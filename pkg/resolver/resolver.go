// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package resolver maps the Uri-Host and Uri-Path options of a request onto
// a file path under the storage root.
package resolver

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/absmach/coapfs/pkg/coap"
)

var (
	// ErrWrongHost indicates a Uri-Host option that does not name this server.
	ErrWrongHost = errors.New("wrong host")

	// ErrMalformedOption indicates an option value that is not valid UTF-8
	// or a path segment that cannot be mapped inside the storage root.
	ErrMalformedOption = errors.New("malformed option")

	// ErrUnsupportedOption indicates an option other than Uri-Host or Uri-Path.
	ErrUnsupportedOption = errors.New("unsupported option")

	// ErrNoPathFound indicates a request without any path segment.
	ErrNoPathFound = errors.New("no path found")
)

// Resolver turns an option sequence into a file path.
type Resolver struct {
	root  string
	hosts []string
}

// New creates a resolver rooted at root. A Uri-Host value is accepted when it
// contains any of hosts.
func New(root string, hosts []string) *Resolver {
	return &Resolver{
		root:  filepath.Clean(root),
		hosts: hosts,
	}
}

// Root returns the storage root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve consumes opts in order and returns the resource path.
func (r *Resolver) Resolve(opts coap.Options) (string, error) {
	path := r.root

	for _, opt := range opts {
		switch opt.Number {
		case coap.URIHost:
			host, err := utf8Value(opt)
			if err != nil {
				return "", err
			}
			if !r.allowedHost(host) {
				return "", fmt.Errorf("%w: %q", ErrWrongHost, host)
			}

		case coap.URIPath:
			seg, err := utf8Value(opt)
			if err != nil {
				return "", err
			}
			if err := checkSegment(seg); err != nil {
				return "", err
			}
			path += "/" + seg

		default:
			return "", fmt.Errorf("%w: %d", ErrUnsupportedOption, opt.Number)
		}
	}

	cleaned := filepath.Clean(path)
	if cleaned == r.root {
		return "", ErrNoPathFound
	}
	prefix := r.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if !strings.HasPrefix(cleaned, prefix) {
		return "", fmt.Errorf("%w: path escapes storage root", ErrMalformedOption)
	}

	return cleaned, nil
}

func (r *Resolver) allowedHost(host string) bool {
	for _, h := range r.hosts {
		if h != "" && strings.Contains(host, h) {
			return true
		}
	}
	return false
}

func utf8Value(opt coap.Option) (string, error) {
	if !utf8.Valid(opt.Value) {
		return "", fmt.Errorf("%w: option %d is not UTF-8", ErrMalformedOption, opt.Number)
	}
	return string(opt.Value), nil
}

func checkSegment(seg string) error {
	if strings.ContainsRune(seg, 0) {
		return fmt.Errorf("%w: NUL in path segment", ErrMalformedOption)
	}
	for _, part := range strings.Split(seg, "/") {
		if part == ".." {
			return fmt.Errorf("%w: %q segment not allowed", ErrMalformedOption, seg)
		}
	}
	return nil
}
