// Package migrations embeds the SQL applied to every tenant schema.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed attendance/tenant/*.up.sql
var attendanceTenant embed.FS

// AttendanceTenant returns the up migrations for a tenant schema in order.
func AttendanceTenant() ([]string, error) {
	names, err := fs.Glob(attendanceTenant, "attendance/tenant/*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		b, err := attendanceTenant.ReadFile(name)
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}
