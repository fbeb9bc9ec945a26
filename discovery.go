package pippin

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pippin-db/pippin/internal/streamio"
)

// snapshotNameRE matches "FILEPART-ssN.pip", where FILEPART is whatever
// remains of BASENAME after any leading subdirectory has been split off
// by splitBaseName. FILEPART is greedy, so a base name that itself
// contains "-ss" still resolves correctly as long as the trailing
// "-ssN.pip" is the last such occurrence.
var snapshotNameRE = regexp.MustCompile(`^(.+)-ss([0-9]+)\.pip$`)

// logNameRE matches "FILEPART-ssN-clM.piplog".
var logNameRE = regexp.MustCompile(`^(.+)-ss([0-9]+)-cl([0-9]+)\.piplog$`)

// splitBaseName separates a base name's leading subdirectory (spec §6:
// "BASENAME may contain /, where / denotes subdirectory") from the file
// name prefix matched against entries within that subdirectory.
func splitBaseName(baseName string) (subDir, filePart string) {
	idx := strings.LastIndexByte(baseName, '/')
	if idx < 0 {
		return "", baseName
	}
	return baseName[:idx], baseName[idx+1:]
}

type discoveredSnapshot struct {
	name        string
	snapshotNum int
}

type discoveredLog struct {
	name        string
	snapshotNum int
	logNum      int
}

// discover lists dir and groups every file belonging to baseName into
// its snapshots and logs, per spec §6's filesystem layout.
func discover(provider streamio.Provider, dir, baseName string) (snapshots []discoveredSnapshot, logs []discoveredLog, err error) {
	subDir, filePart := splitBaseName(baseName)
	scanDir := dir
	if subDir != "" {
		scanDir = filepath.Join(dir, subDir)
	}

	entries, err := provider.ReadDir(scanDir)
	if err != nil {
		if subDir != "" {
			// No such subdirectory yet is simply "nothing discovered",
			// not a failure: Create hasn't written anything there yet.
			return nil, nil, nil
		}
		return nil, nil, err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		relName := name
		if subDir != "" {
			relName = filepath.Join(subDir, name)
		}
		if m := snapshotNameRE.FindStringSubmatch(name); m != nil {
			if m[1] != filePart {
				continue
			}
			snapshots = append(snapshots, discoveredSnapshot{name: relName, snapshotNum: atoiOrZero(m[2])})
			continue
		}
		if m := logNameRE.FindStringSubmatch(name); m != nil {
			if m[1] != filePart {
				continue
			}
			logs = append(logs, discoveredLog{name: relName, snapshotNum: atoiOrZero(m[2]), logNum: atoiOrZero(m[3])})
		}
	}

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].snapshotNum > snapshots[j].snapshotNum })
	sort.Slice(logs, func(i, j int) bool { return logs[i].logNum < logs[j].logNum })
	return snapshots, logs, nil
}

func atoiOrZero(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

func logsForSnapshot(logs []discoveredLog, snapshotNum int) []discoveredLog {
	out := make([]discoveredLog, 0, len(logs))
	for _, l := range logs {
		if l.snapshotNum == snapshotNum {
			out = append(out, l)
		}
	}
	return out
}

func highestLogNum(logs []discoveredLog) int {
	highest := 0
	for _, l := range logs {
		if l.logNum > highest {
			highest = l.logNum
		}
	}
	return highest
}
