package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/semmidev/dbbackup/internal/domain"
)

// DumpExtension is the extension of every plain SQL dump.
const DumpExtension = ".sql"

const filenameTimestamp = "060102_150405"

var (
	timestampPattern = regexp.MustCompile(`^bk_(\d{6}_\d{6})_`)
	versionChars     = regexp.MustCompile(`[^A-Za-z0-9.]`)
)

// BuildFilename renders bk_<yymmdd_HHMMSS>_pg<version>_<env3>[_sch].sql.
// at must already be in the scheduler timezone.
func BuildFilename(at time.Time, version string, env domain.Environment, kind domain.BackupKind) string {
	version = versionChars.ReplaceAllString(version, "")
	if version == "" {
		version = domain.UnknownVersion
	}

	suffix := ""
	if kind == domain.KindScheduled {
		suffix = "_sch"
	}
	return fmt.Sprintf("bk_%s_pg%s_%s%s%s", at.Format(filenameTimestamp), version, env.Code(), suffix, DumpExtension)
}

// extractTimestamp reads the creation time back out of a dump filename,
// ignoring any compression extension.
func extractTimestamp(filename string, loc *time.Location) (time.Time, error) {
	name := strings.TrimSuffix(filename, ".gz")
	matches := timestampPattern.FindStringSubmatch(name)
	if len(matches) < 2 {
		return time.Time{}, fmt.Errorf("invalid filename format: no timestamp found")
	}
	return time.ParseInLocation(filenameTimestamp, matches[1], loc)
}
