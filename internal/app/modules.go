package app

import (
	"github.com/vk/modgrid/internal/module"
	"github.com/vk/modgrid/modules/env_vars"
	"github.com/vk/modgrid/modules/example"
	"github.com/vk/modgrid/modules/hello"
	"github.com/vk/modgrid/modules/http_request"
	"github.com/vk/modgrid/modules/print"
	"github.com/vk/modgrid/modules/s3"
)

// coreModules is the definitive list of all modules that are compiled into
// the modgrid binary.
var coreModules = []module.Module{
	&hello.Module{},
	&example.Module{},
	&env_vars.Module{},
	&print.Module{},
	&http_request.Module{},
	&s3.Module{},
}
