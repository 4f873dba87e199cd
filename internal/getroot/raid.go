package getroot

import (
	"strings"
)

// raidName names an md array: md0, md0,1 for partitionable arrays, md/name
// for named ones. When mdadm reports the array UUID it takes precedence as
// mduuid/<uuid>[,part].
func (r *Resolver) raidName(osDev string) (string, error) {
	kernel := osDev
	if rel, ok := strings.CutPrefix(osDev, strings.TrimSuffix(r.devDir(), "/")+"/"); ok {
		kernel = "/dev/" + rel
	}
	name, err := RAIDName(kernel)
	if err != nil {
		return "", newError(KindConfig, "naming", osDev, err)
	}
	if r.MD == nil {
		return name, nil
	}
	id := r.MD.UUID(osDev)
	if id == "" {
		return name, nil
	}
	if part := raidPartition(osDev); part != "" {
		return "mduuid/" + id + "," + part, nil
	}
	return "mduuid/" + id, nil
}

// RAIDName derives an md device name from the kernel naming schemes:
//
//	/dev/md_d0p1, /dev/md/d0p1 -> md0,1
//	/dev/md0p1,   /dev/md/0p1  -> md0,1
//	/dev/md/name               -> md/name
func RAIDName(osDev string) (string, error) {
	rest, ok := strings.CutPrefix(osDev, "/dev/md")
	if !ok || rest == "" {
		return "", ErrUnknownRAID
	}
	numbered := func(s string) string {
		return "md" + strings.Replace(s, "p", ",", 1)
	}

	switch {
	case len(rest) > 2 && (rest[:2] == "_d" || rest[:2] == "/d") && isDigit(rest[2]):
		return numbered(rest[2:]), nil
	case isDigit(rest[0]):
		return numbered(rest), nil
	case len(rest) > 1 && rest[0] == '/' && isDigit(rest[1]):
		return numbered(rest[1:]), nil
	case len(rest) > 1 && rest[0] == '/':
		// mdadm 1.x arrays with a free-form name.
		return "md" + rest, nil
	}
	return "", ErrUnknownRAID
}

// raidPartition returns the partition number of an array partition
// (md0p2 -> "2"), "" for whole arrays.
func raidPartition(osDev string) string {
	i := len(osDev)
	for i > 0 && isDigit(osDev[i-1]) {
		i--
	}
	if i == len(osDev) || i == 0 || osDev[i-1] != 'p' {
		return ""
	}
	return osDev[i:]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
