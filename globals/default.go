package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "report-server",
	Level: hclog.LevelFromString("INFO"),
})
