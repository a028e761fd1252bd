// Command batch encrypts a column of a CSV dataset into a batch file,
// aggregates batches offline, and decrypts the results.
//
//	batch encrypt -data records.csv -column glucose -context ctx.bin -out glucose.json
//	batch aggregate -batch glucose.json -op average -out result.bin
//	batch decrypt -context ctx.bin -result result.bin
//
// The full context file holds the secret key and is created with owner-only
// permissions. Batch files and results only hold public material.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/batch"
	"github.com/ChristianMct/heagg/node"
	"github.com/ChristianMct/heagg/objectstore"
	"github.com/ChristianMct/heagg/services/compute"
	"github.com/ChristianMct/heagg/session"
	"github.com/ChristianMct/heagg/utils"
)

const usage = `usage: batch <command> [flags]

commands:
  encrypt    encrypt a column of a CSV dataset into a batch file
  aggregate  aggregate a batch file or a stored batch
  list       list the batches of a store
  decrypt    decrypt an aggregation result`

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		log.Fatalln(usage)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "encrypt":
		err = encrypt(args)
	case "aggregate":
		err = aggregate(args)
	case "list":
		err = list(args)
	case "decrypt":
		err = decrypt(args)
	default:
		log.Fatalf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		log.Fatalln(err)
	}
}

func encrypt(args []string) error {
	fset := flag.NewFlagSet("encrypt", flag.ExitOnError)
	dataFile := fset.String("data", "", "the CSV dataset")
	column := fset.String("column", "", "the column to encrypt")
	name := fset.String("name", "", "the name of the batch, defaults to the column name")
	contextFile := fset.String("context", "context.bin", "the full context file, created if it does not exist")
	paramsFile := fset.String("params", "", "a JSON file with the scheme parameters of a new context")
	out := fset.String("out", "", "the batch file to write, defaults to <name>.json")
	fset.Parse(args)

	if *name == "" {
		*name = *column
	}
	if *out == "" {
		*out = *name + ".json"
	}

	f, err := os.Open(*dataFile)
	if err != nil {
		return err
	}
	defer f.Close()
	records, err := batch.ReadRecords(f)
	if err != nil {
		return err
	}
	values, err := batch.Column(records, *column)
	if err != nil {
		return err
	}

	sc, err := loadOrCreateContext(*contextFile, *paramsFile)
	if err != nil {
		return err
	}

	b, err := batch.Encrypt(sc, *name, values)
	if err != nil {
		return err
	}
	if err := b.WriteFile(*out); err != nil {
		return err
	}
	log.Printf("encrypted %d records into %s", b.Len(), *out)
	return nil
}

func aggregate(args []string) error {
	fset := flag.NewFlagSet("aggregate", flag.ExitOnError)
	batchFile := fset.String("batch", "", "the batch file to aggregate, it is added to the store if -store is set")
	storePath := fset.String("store", "", "the path of a batch store")
	name := fset.String("name", "", "the name of a stored batch to aggregate")
	opTag := fset.String("op", "sum", "the aggregation operation, sum or average")
	out := fset.String("out", "result.bin", "the result file to write")
	fset.Parse(args)

	op, err := heagg.ParseOperation(*opTag)
	if err != nil {
		return err
	}

	conf := node.Config{ID: "batch", Address: "offline", ObjectStoreConfig: objectstore.Config{BackendName: "null"}}
	if *storePath != "" {
		conf.ObjectStoreConfig = objectstore.Config{BackendName: "hybrid", DBPath: *storePath}
	}
	n, err := node.New(conf)
	if err != nil {
		return err
	}
	defer n.Close()

	var res *compute.Result
	switch {
	case *batchFile != "":
		b, err := batch.ReadFile(*batchFile)
		if err != nil {
			return err
		}
		if *storePath != "" {
			if err := n.Batches().Put(b); err != nil {
				return err
			}
		}
		res, err = batch.Aggregate(context.Background(), n.Compute(), b, op)
		if err != nil {
			return err
		}
	case *name != "" && *storePath != "":
		res, err = n.AggregateBatch(context.Background(), *name, op)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("aggregate needs -batch, or -store and -name")
	}

	if err := os.WriteFile(*out, res.EncryptedResult, 0o644); err != nil {
		return err
	}
	log.Printf("%s of %d values written to %s", res.Operation, res.Inputs, *out)
	return nil
}

func list(args []string) error {
	fset := flag.NewFlagSet("list", flag.ExitOnError)
	storePath := fset.String("store", "", "the path of the batch store")
	fset.Parse(args)

	objs, err := objectstore.NewObjectStoreFromConfig(objectstore.Config{BackendName: "badgerdb", DBPath: *storePath})
	if err != nil {
		return err
	}
	defer objs.Close()

	st := batch.NewStore(objs)
	names, err := st.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		b, err := st.Get(name)
		if err != nil {
			return err
		}
		fmt.Println(b)
	}
	return nil
}

func decrypt(args []string) error {
	fset := flag.NewFlagSet("decrypt", flag.ExitOnError)
	contextFile := fset.String("context", "context.bin", "the full context file")
	resultFile := fset.String("result", "result.bin", "the result file to decrypt")
	fset.Parse(args)

	data, err := os.ReadFile(*contextFile)
	if err != nil {
		return err
	}
	sc, err := session.LoadFull(data)
	if err != nil {
		return err
	}
	data, err = os.ReadFile(*resultFile)
	if err != nil {
		return err
	}
	ct, err := session.UnmarshalCiphertext(sc.Public(), data)
	if err != nil {
		return err
	}
	v, err := sc.Decrypt(ct)
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func loadOrCreateContext(contextFile, paramsFile string) (*session.Context, error) {
	data, err := os.ReadFile(contextFile)
	if err == nil {
		return session.LoadFull(data)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	params := session.DefaultParameters
	if paramsFile != "" {
		params = session.Parameters{}
		if err := utils.UnmarshalJSONFromFile(paramsFile, &params); err != nil {
			return nil, err
		}
	}
	sc, err := session.NewContext(params)
	if err != nil {
		return nil, err
	}
	full, err := sc.MarshalFull()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(contextFile, full, 0o600); err != nil {
		return nil, err
	}
	log.Printf("created a new context in %s", contextFile)
	return sc, nil
}
