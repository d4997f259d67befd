package execution

import (
	"github.com/apache/arrow/go/v13/arrow"
)

// Batches are built with approximately this many rows. Different sizes are allowed.
const IdealBatchSize = 16 * 1024

// Record is a single batch. Its columns are the columns of the batch, in order.
type Record struct {
	arrow.Record
}

// Slice splits the record into batches of at most size rows.
func (record Record) Slice(size int) []Record {
	rows := int(record.NumRows())
	if rows <= size {
		return []Record{record}
	}
	out := make([]Record, 0, (rows+size-1)/size)
	for start := 0; start < rows; start += size {
		end := start + size
		if end > rows {
			end = rows
		}
		out = append(out, Record{Record: record.NewSlice(int64(start), int64(end))})
	}
	return out
}
