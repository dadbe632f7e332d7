package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/garagedoor/pkg/config"
	"github.com/robotalks/garagedoor/pkg/framework"
)

func init() {
	config.SetupFlags()
}

func main() {
	// log to console unless told otherwise
	flag.Set("logtostderr", "true")
	flag.Parse()
	defer glog.Flush()

	daemon := config.NewConfig().MustNewDaemon()
	if err := framework.NewRunner().HandleSignals().Go(daemon).Wait(); err != nil {
		glog.Fatalln(err)
	}
}
