// Command originator encrypts values, requests their aggregation from an
// aggregation server, and prints the decrypted result.
//
// Values are read from the command-line arguments, or from a column of a
// CSV dataset:
//
//	originator -server localhost:40000 -op average 45 130 210
//	originator -server localhost:40000 -data records.csv -column glucose -verify
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ChristianMct/heagg"
	"github.com/ChristianMct/heagg/batch"
	"github.com/ChristianMct/heagg/originator"
	"github.com/ChristianMct/heagg/session"
	"github.com/ChristianMct/heagg/transport/centralized"
	"github.com/ChristianMct/heagg/utils"
)

var id = flag.String("id", "originator", "the id of this node")
var server = flag.String("server", "localhost:40000", "the address of the aggregation server")
var opTag = flag.String("op", "sum", "the aggregation operation, sum or average")
var paramsFile = flag.String("params", "", "a JSON file with the scheme parameters, the default parameters are used if empty")
var contextFile = flag.String("context", "", "a full context file created by the batch command, a new context is generated if empty")
var dataFile = flag.String("data", "", "a CSV dataset to read the values from")
var column = flag.String("column", "", "the column of the dataset to aggregate")
var timeout = flag.Duration("timeout", time.Minute, "the timeout of the aggregation request")
var verify = flag.Bool("verify", false, "compare the result with the result computed in the clear")

func main() {
	flag.Parse()

	op, err := heagg.ParseOperation(*opTag)
	if err != nil {
		log.Fatalln(err)
	}

	values, err := readValues()
	if err != nil {
		log.Fatalln("could not read the values:", err)
	}

	sc, err := loadContext()
	if err != nil {
		log.Fatalln("could not load the context:", err)
	}

	cli := centralized.NewAggregationClient(heagg.NodeID(*id), heagg.NodeAddress(*server))
	if err := cli.Connect(); err != nil {
		log.Fatalln(err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	res, err := originator.New(heagg.NodeID(*id), sc, cli).Analyze(ctx, values, op)
	if err != nil {
		log.Printf("aggregation failed: %s (kind: %s)", err, heagg.Kind(err))
		os.Exit(1)
	}
	log.Printf("%s of %d values computed in %s, network: %s", op, len(values), time.Since(start), cli.GetStats())
	fmt.Println(res)

	if *verify {
		expected, err := originator.Expected(values, op)
		if err != nil {
			log.Fatalln(err)
		}
		fmt.Printf("expected %f, error %e\n", expected, res-expected)
	}
}

func readValues() ([]float64, error) {
	if *dataFile != "" {
		f, err := os.Open(*dataFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		records, err := batch.ReadRecords(f)
		if err != nil {
			return nil, err
		}
		return batch.Column(records, *column)
	}

	values := make([]float64, flag.NArg())
	for i, arg := range flag.Args() {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

func loadContext() (*session.Context, error) {
	if *contextFile != "" {
		data, err := os.ReadFile(*contextFile)
		if err != nil {
			return nil, err
		}
		return session.LoadFull(data)
	}
	if *paramsFile == "" {
		return session.NewContext(session.DefaultParameters)
	}
	var params session.Parameters
	if err := utils.UnmarshalJSONFromFile(*paramsFile, &params); err != nil {
		return nil, err
	}
	return session.NewContext(params)
}
