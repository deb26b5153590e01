package importer

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"
)

// Fetch downloads src, any go-getter source address, into dir and returns
// the local file path. Local paths are returned unchanged.
func Fetch(ctx context.Context, src, dir string) (string, error) {
	if src == "" {
		return "", ErrEmptyPath
	}
	if _, err := os.Stat(src); err == nil {
		return src, nil
	}
	name := sourceName(src)
	if name == "" {
		return "", fmt.Errorf("importer: cannot derive a file name from %q", src)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	pwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	dst := filepath.Join(dir, name)
	client := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Pwd:  pwd,
		Mode: getter.ClientModeFile,
	}
	if err := client.Get(); err != nil {
		return "", fmt.Errorf("importer: fetch %s: %w", src, err)
	}
	return dst, nil
}

// sourceName picks the file name of a source address, ignoring any forced
// getter prefix ("http::"), query string and subdirectory suffix.
func sourceName(src string) string {
	if i := strings.Index(src, "::"); i >= 0 {
		src = src[i+2:]
	}
	p := src
	if u, err := url.Parse(src); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if i := strings.Index(p, "//"); i > 0 {
		p = p[:i]
	}
	name := path.Base(p)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
