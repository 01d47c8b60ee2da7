package mssql

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Relocation maps one logical file of a backup to its physical destination.
type Relocation struct {
	LogicalName string
	TargetPath  string
}

// extensionByType maps the engine's file type codes to extensions. Codes
// not in the map fall back to .dat.
var extensionByType = map[string]string{
	"D": ".mdf", // data
	"L": ".ldf", // log
	"F": ".fs",  // filestream
	"S": ".ft",  // full-text catalog
	"X": ".xtp", // memory-optimized
}

// ExtensionForType returns the file extension for a manifest type code.
func ExtensionForType(code string) string {
	if ext, ok := extensionByType[strings.ToUpper(code)]; ok {
		return ext
	}
	return ".dat"
}

// BuildPlan derives the relocation plan for a manifest, one entry per file
// in manifest order, each targeting the working directory.
func BuildPlan(files []BackupFile, workDir string) []Relocation {
	plan := make([]Relocation, 0, len(files))
	for _, f := range files {
		plan = append(plan, Relocation{
			LogicalName: f.LogicalName,
			TargetPath:  filepath.Join(workDir, f.LogicalName+ExtensionForType(f.Type)),
		})
	}
	return plan
}

// MoveClauses renders a plan as the MOVE clauses of a RESTORE statement,
// comma separated, order preserved. Values are embedded as quoted string
// literals because MOVE does not accept parameters.
func MoveClauses(moves []Relocation) string {
	clauses := make([]string, 0, len(moves))
	for _, m := range moves {
		clauses = append(clauses, fmt.Sprintf("MOVE N'%s' TO N'%s'",
			escapeLiteral(m.LogicalName),
			escapeLiteral(m.TargetPath),
		))
	}
	return strings.Join(clauses, ", ")
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
