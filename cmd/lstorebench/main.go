// Command lstorebench measures insert, point-select, and update
// throughput against a single table, optionally driving concurrent
// transaction workers to exercise lock contention under write-heavy load.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/cosmobiosis/lstore/common"
	"github.com/cosmobiosis/lstore/lstoredb"
	"github.com/cosmobiosis/lstore/txn"
)

func main() {
	numRecords := flag.Int("records", 10000, "number of rows to insert before measuring")
	numColumns := flag.Int("columns", 5, "number of user columns")
	workers := flag.Int("workers", 4, "number of concurrent transaction workers for the update phase")
	dataDir := flag.String("dir", "./data-lstorebench", "scratch directory for table files")
	flag.Parse()

	fmt.Println("lstore benchmark")
	fmt.Printf("records=%d columns=%d workers=%d\n\n", *numRecords, *numColumns, *workers)

	os.RemoveAll(*dataDir)
	defer os.RemoveAll(*dataDir)

	cfg := common.DefaultConfig()
	db, err := lstoredb.Open(cfg, *dataDir, nil)
	if err != nil {
		fmt.Println("open:", err)
		os.Exit(1)
	}
	defer db.Close()

	tbl, err := db.CreateTable("bench", *numColumns, 0)
	if err != nil {
		fmt.Println("create table:", err)
		os.Exit(1)
	}
	q := lstoredb.New(tbl)

	keys := make([]int64, *numRecords)
	start := time.Now()
	for i := 0; i < *numRecords; i++ {
		key := int64(i + 1)
		keys[i] = key
		cols := make([]int64, *numColumns)
		cols[0] = key
		for c := 1; c < *numColumns; c++ {
			cols[c] = int64(gofakeit.Number(0, 100))
		}
		if err := q.Insert(cols...); err != nil {
			fmt.Println("insert:", err)
			os.Exit(1)
		}
	}
	insertElapsed := time.Since(start)
	fmt.Printf("insert:  %d rows in %v (%.0f rows/sec)\n",
		*numRecords, insertElapsed, float64(*numRecords)/insertElapsed.Seconds())

	mask := make([]bool, *numColumns)
	for i := range mask {
		mask[i] = true
	}
	start = time.Now()
	for _, key := range keys {
		if _, err := q.Select(key, 0, mask); err != nil {
			fmt.Println("select:", err)
			os.Exit(1)
		}
	}
	selectElapsed := time.Since(start)
	fmt.Printf("select:  %d point lookups in %v (%.0f lookups/sec)\n",
		*numRecords, selectElapsed, float64(*numRecords)/selectElapsed.Seconds())

	start = time.Now()
	var wg sync.WaitGroup
	var mu sync.Mutex
	totalCommitted := 0
	perWorker := len(keys) / *workers
	for w := 0; w < *workers; w++ {
		lo := w * perWorker
		hi := lo + perWorker
		if w == *workers-1 {
			hi = len(keys)
		}
		wg.Add(1)
		go func(slice []int64) {
			defer wg.Done()
			worker := txn.NewWorker(nil)
			for _, key := range slice {
				bump := int64(1)
				tx := txn.New(tbl)
				tx.AddQuery(txn.Query{Kind: txn.Update, Key: key, UpdateValues: updateOneColumn(*numColumns, 1, bump)})
				worker.AddTransaction(tx)
			}
			worker.Run()
			mu.Lock()
			totalCommitted += worker.Result()
			mu.Unlock()
		}(keys[lo:hi])
	}
	wg.Wait()
	updateElapsed := time.Since(start)
	fmt.Printf("update:  %d transactions in %v (%d committed, %.0f txn/sec)\n",
		*numRecords, updateElapsed, totalCommitted, float64(*numRecords)/updateElapsed.Seconds())
}

func updateOneColumn(numColumns, targetColumn int, value int64) []*int64 {
	cols := make([]*int64, numColumns)
	v := value
	cols[targetColumn] = &v
	return cols
}
