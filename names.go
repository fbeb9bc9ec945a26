package pippin

import (
	"fmt"
	"path/filepath"
)

func snapshotName(baseName string, snapshotNum int) string {
	return fmt.Sprintf("%s-ss%d.pip", baseName, snapshotNum)
}

func logName(baseName string, snapshotNum, logNum int) string {
	return fmt.Sprintf("%s-ss%d-cl%d.piplog", baseName, snapshotNum, logNum)
}

func (p *Partition) snapshotPath(snapshotNum int) string {
	return filepath.Join(p.dir, snapshotName(p.baseName, snapshotNum))
}

func (p *Partition) logPath(snapshotNum, logNum int) string {
	return filepath.Join(p.dir, logName(p.baseName, snapshotNum, logNum))
}
