package mysql

import "fmt"

// Position is a point in the source binlog, plus the GTID set the master
// reported executed at that point.
type Position struct {
	File    string `json:"binlog_file"`
	Offset  uint64 `json:"binlog_offset"`
	GtidSet string `json:"executed_gtid_set"`
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.File, p.Offset)
}
