package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/nqrdf/tristore"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("tristore: ")

	create := flag.Bool("create", false, "create the database if it does not exist")
	statsF := flag.Bool("stats", false, "print store statistics and exit")
	backupTo := flag.String("backup", "", "copy the database to this path, then exit")
	restoreFrom := flag.String("restore-from", "", "restore the database from this backup path, then exit")
	cacheMem := flag.String("cache-max-memory", "64MB", "result cache memory bound (e.g. 128MB)")
	cacheTTL := flag.Duration("cache-ttl", 5*time.Minute, "result cache entry lifetime")

	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: tristore <flags> <database path>")
		flag.PrintDefaults()
	}

	flag.Parse()

	if len(flag.Args()) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	var maxMem datasize.ByteSize
	if err := maxMem.UnmarshalText([]byte(*cacheMem)); err != nil {
		log.Fatalf("invalid -cache-max-memory: %v", err)
	}

	db, err := tristore.Open(flag.Args()[0], tristore.Options{
		CreateIfMissing: *create,
		CacheMaxMemory:  maxMem,
		CacheTTL:        *cacheTTL,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if *restoreFrom != "" {
		if err := db.Restore(*restoreFrom, flag.Args()[0]); err != nil {
			log.Fatal(err)
		}
		log.Printf("restored from %s", *restoreFrom)
	}

	if *backupTo != "" {
		if err := db.Backup(*backupTo); err != nil {
			log.Fatal(err)
		}
		log.Printf("backed up to %s", *backupTo)
	}

	if *statsF {
		for k, v := range db.Stats() {
			fmt.Printf("%s=%d\n", k, v)
		}
	}
}
