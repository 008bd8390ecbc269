package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/zenGate-Global/palmyra-payroll/platform/go/tenant"
)

// ObjectLocation describes where a report lives.
type ObjectLocation struct {
	Bucket   string
	FullPath string
}

// String renders the location as a gs:// URI, or the bare path when there is no bucket.
func (l ObjectLocation) String() string {
	if l.Bucket == "" {
		return l.FullPath
	}
	return "gs://" + l.Bucket + "/" + l.FullPath
}

// ResolveReportLocation places a job report under the environment prefix of the bucket.
//   - bucket comes from deployment configuration (one bucket per environment class) and may be
//     empty for filesystem archives.
//   - the key is "<envKey>/reports/<job>/<yyyy>/<mm>/<dd>/<runID>.json".
func ResolveReportLocation(bucket, envKey, job, runID string, at time.Time) (ObjectLocation, error) {
	job = strings.Trim(strings.TrimSpace(job), "/")
	if job == "" {
		return ObjectLocation{}, fmt.Errorf("job name is required")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" || strings.ContainsAny(runID, `/\`) {
		return ObjectLocation{}, fmt.Errorf("invalid run id %q", runID)
	}
	return ObjectLocation{
		Bucket:   strings.TrimSpace(bucket),
		FullPath: tenant.ReportKey(envKey, job, runID, at),
	}, nil
}
