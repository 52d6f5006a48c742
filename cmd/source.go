package main

import (
	"context"
	"net/url"
	"os"
	"path"

	"github.com/rotisserie/eris"
)

// readSource loads an import file from a local path or an http(s) URL. The
// returned name carries the extension used for format detection.
func readSource(ctx context.Context, src string) (name string, data []byte, err error) {
	if u, perr := url.Parse(src); perr == nil && (u.Scheme == "http" || u.Scheme == "https") {
		data, err = newFetcher().DownloadBytes(ctx, src)
		if err != nil {
			return "", nil, eris.Wrapf(err, "download %s", src)
		}
		return path.Base(u.Path), data, nil
	}

	data, err = os.ReadFile(src)
	if err != nil {
		return "", nil, eris.Wrapf(err, "read %s", src)
	}
	return src, data, nil
}
