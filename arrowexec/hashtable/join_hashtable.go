package hashtable

import (
	"fmt"
	"runtime"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/brentp/intintmap"
	"github.com/twotwotwo/sorts"
	"golang.org/x/sync/errgroup"

	"github.com/cube2222/octojit/arrowexec/execution"
	"github.com/cube2222/octojit/arrowexec/helpers"
)

// JoinTable is the build side of a hash join over a single integral key.
// Rows are hash-partitioned, each partition is a single record sorted by key hash.
type JoinTable struct {
	partitions []JoinTablePartition
	keyIndex   int
}

type JoinTablePartition struct {
	hashStartIndices *intintmap.Map
	hashes           *array.Uint64
	keys             []int64
	values           execution.Record
}

// Match identifies a row of a partition.
type Match struct {
	Partition int
	Row       int
}

// BuildJoinTable partitions the records by the key column. Rows with a null key are left out, as they never match.
func BuildJoinTable(schema *arrow.Schema, records []execution.Record, keyIndex int, partitions int) (*JoinTable, error) {
	if partitions < 1 {
		return nil, fmt.Errorf("partition count must be positive, got %d", partitions)
	}
	if keyIndex < 0 || keyIndex >= len(schema.Fields()) {
		return nil, fmt.Errorf("key index %d out of range for %d columns", keyIndex, len(schema.Fields()))
	}

	keyReaders := make([]func(rowIndex int) (int64, bool), len(records))
	var overallRowCount int
	for i, record := range records {
		keyReader, err := helpers.MakeKeyReader(record.Column(keyIndex))
		if err != nil {
			return nil, fmt.Errorf("couldn't read keys of record %d: %w", i, err)
		}
		keyReaders[i] = keyReader
		overallRowCount += int(record.NumRows())
	}

	hashPositionsOrdered := make([][]hashRowPosition, partitions)
	for i := range hashPositionsOrdered {
		hashPositionsOrdered[i] = make([]hashRowPosition, 0, overallRowCount/partitions)
	}

	for recordIndex, record := range records {
		numRows := int(record.NumRows())
		for rowIndex := 0; rowIndex < numRows; rowIndex++ {
			key, ok := keyReaders[recordIndex](rowIndex)
			if !ok {
				continue
			}
			hash := helpers.HashKey(key)
			partition := int(hash % uint64(partitions))
			hashPositionsOrdered[partition] = append(hashPositionsOrdered[partition], hashRowPosition{
				hash:        hash,
				key:         key,
				recordIndex: recordIndex,
				rowIndex:    rowIndex,
			})
		}
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	joinTablePartitions := make([]JoinTablePartition, partitions)
	for part := 0; part < partitions; part++ {
		part := part

		g.Go(func() error {
			hashPositionsOrderedPartition := hashPositionsOrdered[part]
			sorts.ByUint64(SortHashPosition(hashPositionsOrderedPartition))

			record, err := buildRecord(schema, records, hashPositionsOrderedPartition)
			if err != nil {
				return fmt.Errorf("couldn't build partition %d: %w", part, err)
			}
			keys := make([]int64, len(hashPositionsOrderedPartition))
			for i := range hashPositionsOrderedPartition {
				keys[i] = hashPositionsOrderedPartition[i].key
			}

			joinTablePartitions[part] = JoinTablePartition{
				hashStartIndices: buildHashIndex(hashPositionsOrderedPartition),
				hashes:           buildHashesArray(hashPositionsOrderedPartition),
				keys:             keys,
				values:           execution.Record{Record: record},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &JoinTable{
		partitions: joinTablePartitions,
		keyIndex:   keyIndex,
	}, nil
}

func buildHashIndex(hashPositionsOrdered []hashRowPosition) *intintmap.Map {
	if len(hashPositionsOrdered) == 0 {
		return intintmap.New(1, 0.6)
	}
	hashIndex := intintmap.New(1024, 0.6)
	hashIndex.Put(int64(hashPositionsOrdered[0].hash), 0)
	for i := 1; i < len(hashPositionsOrdered); i++ {
		if hashPositionsOrdered[i].hash != hashPositionsOrdered[i-1].hash {
			hashIndex.Put(int64(hashPositionsOrdered[i].hash), int64(i))
		}
	}
	return hashIndex
}

type hashRowPosition struct {
	hash        uint64
	key         int64
	recordIndex int
	rowIndex    int
}

func buildHashesArray(hashPositionsOrdered []hashRowPosition) *array.Uint64 {
	hashesBuilder := array.NewUint64Builder(memory.NewGoAllocator())
	hashesBuilder.Reserve(len(hashPositionsOrdered))
	for _, hashPosition := range hashPositionsOrdered {
		hashesBuilder.UnsafeAppend(hashPosition.hash)
	}
	return hashesBuilder.NewUint64Array()
}

func buildRecord(schema *arrow.Schema, records []execution.Record, hashPositionsOrdered []hashRowPosition) (arrow.Record, error) {
	recordBuilder := array.NewRecordBuilder(memory.NewGoAllocator(), schema)
	recordBuilder.Reserve(len(hashPositionsOrdered))

	for columnIndex := range recordBuilder.Fields() {
		columnRewriters := make([]func(rowIndex int), len(records))
		for recordIndex, record := range records {
			rewriter, err := helpers.MakeColumnRewriter(recordBuilder.Field(columnIndex), record.Column(columnIndex))
			if err != nil {
				return nil, fmt.Errorf("couldn't rewrite column %s: %w", schema.Field(columnIndex).Name, err)
			}
			columnRewriters[recordIndex] = rewriter
		}
		for _, hashPosition := range hashPositionsOrdered {
			columnRewriters[hashPosition.recordIndex](hashPosition.rowIndex)
		}
	}
	return recordBuilder.NewRecord(), nil
}

type SortHashPosition []hashRowPosition

func (h SortHashPosition) Len() int {
	return len(h)
}

func (h SortHashPosition) Less(i, j int) bool {
	return h[i].hash < h[j].hash
}

func (h SortHashPosition) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h SortHashPosition) Key(i int) uint64 {
	return h[i].hash
}

// Partitions returns the records of all partitions. Matches refer to rows of these records.
func (t *JoinTable) Partitions() []execution.Record {
	out := make([]execution.Record, len(t.partitions))
	for i := range t.partitions {
		out[i] = t.partitions[i].values
	}
	return out
}

// FindAll returns all rows with the given key, in table order.
func (t *JoinTable) FindAll(key int64) []Match {
	hash := helpers.HashKey(key)
	partitionIndex := int(hash % uint64(len(t.partitions)))
	partition := t.partitions[partitionIndex]

	firstMatchingHashIndex, ok := partition.hashStartIndices.Get(int64(hash))
	if !ok {
		return nil
	}

	var out []Match
	for tableRowIndex := int(firstMatchingHashIndex); tableRowIndex < partition.hashes.Len(); tableRowIndex++ {
		if partition.hashes.Value(tableRowIndex) != hash {
			break
		}
		if partition.keys[tableRowIndex] == key {
			out = append(out, Match{Partition: partitionIndex, Row: tableRowIndex})
		}
	}
	return out
}
