package materialize

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fluidnumerics/idsync/internal/cache"
)

// renderPasswd builds the passwd file body: one line per active user,
// "username:x:uid:gid:gecos:home:shell", sorted by (uid, username)
// (spec.md §4.5). users is already ordered that way by
// Store.GetActiveUsers, so this only formats.
func renderPasswd(users []cache.User) string {
	var b strings.Builder
	for _, u := range users {
		fmt.Fprintf(&b, "%s:x:%d:%d:%s:%s:%s\n", u.Username, u.UID, u.GID, u.Gecos, u.Home, u.Shell)
	}
	return b.String()
}

// renderShadow builds the shadow file body: one line per active user,
// "username:!:<days>:0:99999:7:::" where <days> is the number of days
// since 1970-01-01 in the process's local civil date (spec.md §4.5). The
// password field is always "!" — no cloud password is ever placed here.
func renderShadow(users []cache.User, now time.Time) string {
	days := daysSinceEpoch(now)
	var b strings.Builder
	for _, u := range users {
		fmt.Fprintf(&b, "%s:!:%d:0:99999:7:::\n", u.Username, days)
	}
	return b.String()
}

func daysSinceEpoch(t time.Time) int64 {
	y, m, d := t.Local().Date()
	civil := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	epoch := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int64(civil.Sub(epoch).Hours() / 24)
}

// renderGroup builds the group file body in ascending gid order, composed
// of two sources (spec.md §4.5):
//
//  1. an implicit primary group for every distinct primary GID appearing
//     among active users — named after the sole user sharing it, or
//     "grp<gid>" when more than one user shares it — with no members;
//  2. every active directory group, "<name>:x:<gid>:<sorted usernames>".
func renderGroup(users []cache.User, groups []cache.Group, membership map[string][]string) string {
	type row struct {
		gid  int64
		name string
		line string
	}

	usersByGID := make(map[int64][]string)
	var gidOrder []int64
	for _, u := range users {
		if _, seen := usersByGID[u.GID]; !seen {
			gidOrder = append(gidOrder, u.GID)
		}
		usersByGID[u.GID] = append(usersByGID[u.GID], u.Username)
	}

	var rows []row
	for _, gid := range gidOrder {
		members := usersByGID[gid]
		var name string
		if len(members) == 1 {
			name = members[0]
		} else {
			name = fmt.Sprintf("grp%d", gid)
		}
		rows = append(rows, row{
			gid:  gid,
			name: name,
			line: fmt.Sprintf("%s:x:%d:\n", name, gid),
		})
	}

	for _, g := range groups {
		members := append([]string(nil), membership[g.GroupID]...)
		sort.Strings(members)
		rows = append(rows, row{
			gid:  g.GID,
			name: g.Name,
			line: fmt.Sprintf("%s:x:%d:%s\n", g.Name, g.GID, strings.Join(members, ",")),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].gid != rows[j].gid {
			return rows[i].gid < rows[j].gid
		}
		return rows[i].name < rows[j].name
	})

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(r.line)
	}
	return b.String()
}
