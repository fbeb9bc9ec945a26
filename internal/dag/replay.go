package dag

import (
	"github.com/pippin-db/pippin/internal/codec"
	"github.com/pippin-db/pippin/internal/sum"
)

// UnresolvedCommit describes a commit that never found its first parent
// during replay, or whose application was rejected as corrupt. Which of
// the two applies is recorded in Corrupt; the partition engine decides
// whether a non-corrupt unresolved commit reflects a missing ancestor
// file (warn and drop) based on what it knows about discovery (spec
// §4.4 step 4).
type UnresolvedCommit struct {
	Record         *codec.CommitRecord
	ExpectedParent sum.Sum
	Corrupt        bool
	Err            error
}

// LoadReport summarizes one replay: how many commits were accepted
// versus left unresolved. It does not record which log files were
// truncated or which snapshots were rejected.
type LoadReport struct {
	CommitsAccepted int
	Unresolved      []UnresolvedCommit
}

// Replay rebuilds a Dag from a set of root states (typically parsed
// snapshots) and a set of commit records (typically parsed from one or
// more commit-log files). Commits are applied to their first-listed
// parent (spec §4.2: "REPL only when it currently maps..."); a commit
// whose parent isn't loaded yet is retried after every successful
// insertion elsewhere, so logs can be replayed regardless of record
// order (spec §4.4 step 4).
func Replay(partition sum.PartitionId, roots []*PartState, records []*codec.CommitRecord) (*Dag, *LoadReport, error) {
	d := New(partition)
	for _, r := range roots {
		d.Add(r)
	}

	report := &LoadReport{}
	pending := make([]*codec.CommitRecord, len(records))
	copy(pending, records)

	for {
		progressed := false
		next := pending[:0:0]
		for _, rec := range pending {
			if len(rec.Parents) == 0 {
				next = append(next, rec)
				continue
			}
			parent, ok := d.Get(rec.Parents[0])
			if !ok {
				next = append(next, rec)
				continue
			}
			child, err := ApplyCommit(partition, parent, rec)
			if err != nil {
				report.Unresolved = append(report.Unresolved, UnresolvedCommit{
					Record:         rec,
					ExpectedParent: rec.Parents[0],
					Corrupt:        true,
					Err:            err,
				})
				progressed = true
				continue
			}
			d.Add(child)
			report.CommitsAccepted++
			progressed = true
		}
		pending = next
		if !progressed || len(pending) == 0 {
			break
		}
	}

	for _, rec := range pending {
		var expected sum.Sum
		if len(rec.Parents) > 0 {
			expected = rec.Parents[0]
		}
		report.Unresolved = append(report.Unresolved, UnresolvedCommit{
			Record:         rec,
			ExpectedParent: expected,
			Corrupt:        false,
		})
	}

	return d, report, nil
}
