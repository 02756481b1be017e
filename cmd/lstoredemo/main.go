// Command lstoredemo walks through the engine's full surface against a
// small "Grades" table: inserts, point and secondary-index selects,
// partial updates, a range sum, an increment, and a transaction that
// aborts on lock contention.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/cosmobiosis/lstore/common"
	"github.com/cosmobiosis/lstore/lock"
	"github.com/cosmobiosis/lstore/lstoredb"
	"github.com/cosmobiosis/lstore/txn"
)

func main() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("lstore demo: Grades table")
	fmt.Println(strings.Repeat("=", 80))

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	dataDir := "./data-lstoredemo"
	defer os.RemoveAll(dataDir)

	cfg := common.DefaultConfig()
	db, err := lstoredb.Open(cfg, dataDir, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	tbl, err := db.CreateTable("Grades", 5, 0)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("\n[Created table Grades: 5 columns, key=column 0]")

	q := lstoredb.New(tbl)

	fmt.Println("\n[Inserting rows]")
	rows := [][5]int64{
		{92345671, 88, 91, 77, 95},
		{92345672, 71, 85, 90, 68},
		{92345673, 99, 62, 73, 81},
	}
	for _, r := range rows {
		if err := q.Insert(r[0], r[1], r[2], r[3], r[4]); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("  INSERT %v\n", r)
	}

	fmt.Println("\n[Point select by primary key]")
	recs, err := q.Select(92345671, 0, []bool{true, true, true, true, true})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("  SELECT key=92345671 -> %v\n", columnValues(recs[0].Columns))

	fmt.Println("\n[Building a secondary index on column 1]")
	if err := q.CreateIndex(1); err != nil {
		log.Fatal(err)
	}
	recs, err = q.Select(88, 1, []bool{true, false, false, false, false})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("  SELECT column1=88 -> %d match(es)\n", len(recs))

	fmt.Println("\n[Partial update]")
	newVal := int64(100)
	if err := q.Update(92345671, []*int64{nil, &newVal, nil, nil, nil}); err != nil {
		log.Fatal(err)
	}
	recs, _ = q.Select(92345671, 0, []bool{true, true, false, false, false})
	fmt.Printf("  UPDATE key=92345671 col1=100 -> now reads %v\n", columnValues(recs[0].Columns))

	fmt.Println("\n[Increment]")
	if err := q.Increment(92345672, 4); err != nil {
		log.Fatal(err)
	}
	recs, _ = q.Select(92345672, 0, []bool{false, false, false, false, true})
	fmt.Printf("  INCREMENT key=92345672 col4 -> now reads %v\n", columnValues(recs[0].Columns))

	fmt.Println("\n[Sum over key range]")
	sum, err := q.Sum(92345671, 92345673, 2)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("  SUM column2 over [92345671, 92345673] -> %d\n", sum)

	fmt.Println("\n[Transaction aborting on lock contention]")
	held := tbl.Locks.TryAcquire(92345673, lock.Write)
	fmt.Printf("  external writer holds key 92345673: %v\n", held)
	tx := txn.New(tbl)
	v := int64(1)
	tx.AddQuery(txn.Query{Kind: txn.Update, Key: 92345673, UpdateValues: []*int64{nil, &v, nil, nil, nil}})
	result := tx.Run()
	fmt.Printf("  transaction result (1=committed, 0=aborted) -> %d\n", result)
	tbl.Locks.Release(92345673, lock.Write)

	fmt.Println("\n[Delete]")
	if err := q.Delete(92345673); err != nil {
		log.Fatal(err)
	}
	recs, _ = q.Select(92345673, 0, []bool{true, false, false, false, false})
	fmt.Printf("  DELETE key=92345673 -> %d remaining match(es)\n", len(recs))

	fmt.Println("\nDone.")
}

func columnValues(cols []*int64) []int64 {
	out := make([]int64, 0, len(cols))
	for _, c := range cols {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}
