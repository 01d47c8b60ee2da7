// Package naming builds the artifact and database names shared by all
// workflows. The conventions are fixed: every backup object is named
// {database}_{developer}_{dd_MM_yyyy}_{weekday}.bak and every local
// restore target is named {database}_{developer}.
package naming

import (
	"fmt"
	"strings"
	"time"
)

// ArtifactName returns the backup object name for a database, developer
// suffix and date. Distinct developers on the same day always produce
// distinct names; the same pair always produces the same name.
func ArtifactName(database, developer string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s.bak",
		database,
		developer,
		t.Format("02_01_2006"),
		t.Weekday().String(),
	)
}

// TargetDatabase returns the local restore target name for a developer.
func TargetDatabase(database, developer string) string {
	return fmt.Sprintf("%s_%s", database, developer)
}

// BlobURL returns the full URL of an artifact inside a storage container,
// as consumed by the engine's BACKUP ... TO URL statement.
func BlobURL(accountURL, container, name string) string {
	return fmt.Sprintf("%s/%s/%s",
		strings.TrimRight(accountURL, "/"),
		strings.Trim(container, "/"),
		name,
	)
}
