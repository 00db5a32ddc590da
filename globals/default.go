package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "terrace-buddy",
	Level: hclog.LevelFromString("DEBUG"),
})
