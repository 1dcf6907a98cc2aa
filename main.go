// windchime runs an amplicon sequencing workflow: it demultiplexes pooled
// paired-end reads into per-sample FASTQ files and drives QIIME2 from the
// manifest to a merged ASV and taxonomy table.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/nikothomas/windchime/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: install-env, download-dbs, demux, pipeline, run-all, history")
	fmt.Fprint(os.Stderr, "\n", cmd.InstallEnvHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.DownloadDBsHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.DemuxHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.PipelineHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.RunAllHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.HistoryHelp)
}

func main() {
	fmt.Fprint(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "install-env":
		err = cmd.InstallEnv()
	case "download-dbs":
		err = cmd.DownloadDBs()
	case "demux":
		err = cmd.Demux()
	case "pipeline":
		err = cmd.Pipeline()
	case "run-all":
		err = cmd.RunAll()
	case "history":
		err = cmd.History()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if cmd.IsHelp(err) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatal(err)
	}
}
