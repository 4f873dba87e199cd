package getroot

import (
	"strings"
)

// MakeSystemPathRelativeToItsRoot returns path relative to the root of the
// filesystem containing it, without trailing slashes. A mount point yields
// "". Bind mounts report the path within the source filesystem and pool
// filesystems are prefixed with /<fs>/@.
func (r *Resolver) MakeSystemPathRelativeToItsRoot(path string) (string, error) {
	p, err := r.realpath(path)
	if err != nil {
		return "", newError(KindConfig, "failed to get canonical path of", path, err)
	}

	var poolFS string
	isPool := false
	if r.PoolFromDir != nil {
		_, poolFS, isPool = r.PoolFromDir(p)
	}

	st, err := r.Stat.Stat(p)
	if err != nil {
		return "", newError(KindConfig, "cannot stat", p, err)
	}
	num := st.Dev

	// Walk up until the device changes; offset ends as the length of the
	// mount point prefix of p.
	buf := p
	offset := 0
	for {
		i := strings.LastIndexByte(buf, '/')
		if i < 0 {
			return "", newError(KindConfig, "no / in", buf, ErrBadDevice)
		}
		if i == 0 {
			buf = "/"
			i = 1
		} else {
			buf = buf[:i]
		}

		st, err := r.Stat.Stat(buf)
		if err != nil {
			return "", newError(KindConfig, "cannot stat", buf, err)
		}
		if st.Dev != num {
			if offset == 0 {
				// p is itself a mount point.
				if bind := r.bindRoot(p); bind != "" {
					return r.finishRelPath(bind, poolFS, isPool), nil
				}
				if isPool {
					return "/" + poolFS + "/@", nil
				}
				return "", nil
			}
			break
		}

		offset = i
		if offset == 1 {
			// Reached /, keep the leading slash.
			offset = 0
			break
		}
	}

	rel := p[offset:]
	if bind := r.bindRoot(p[:offset]); bind != "" {
		if !strings.HasPrefix(rel, "/") {
			rel = "/" + rel
		}
		rel = strings.TrimRight(bind, "/") + rel
	}
	return r.finishRelPath(rel, poolFS, isPool), nil
}

// bindRoot returns the root within its filesystem of the mount at dir when
// that is not simply "/".
func (r *Resolver) bindRoot(dir string) string {
	if r.Mounts == nil {
		return ""
	}
	res, err := r.Mounts.Resolve(dir)
	if err != nil || res == nil || len(res.RelRoot) < 2 {
		return ""
	}
	return res.RelRoot
}

func (r *Resolver) finishRelPath(rel, poolFS string, isPool bool) string {
	rel = strings.TrimRight(rel, "/")
	if isPool {
		return "/" + poolFS + "/@" + rel
	}
	return rel
}
