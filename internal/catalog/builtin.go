package catalog

import (
	"context"

	"github.com/PentesterFlow/OpenExplorer/pkg/model"
)

// builtinDefinitions is a minimal starter catalog covering every service.
var builtinDefinitions = []model.APIDefinition{
	{
		ID: "show-version", Service: "eapi", Method: "runCmds", Path: "/command-api",
		Description: "Run show version", Params: []string{"cmds"},
		Category: "System", Tags: []string{"runCmds", "system", "status"},
	},
	{
		ID: "run-cmds", Service: "eapi", Method: "runCmds", Path: "/command-api",
		Description: "Run arbitrary CLI commands", Params: []string{"cmds"},
		Category: "System", Tags: []string{"runCmds", "system"},
	},
	{
		ID: "show-interfaces-status", Service: "eapi", Method: "runCmds", Path: "/command-api",
		Description: "Run show interfaces status", Params: []string{"cmds"},
		Category: "Interfaces", Tags: []string{"runCmds", "interfaces", "status"},
	},
	{
		ID: "inventory-devices", Service: "cloudvision", Method: "GET",
		Path:        "/api/resources/inventory/v1/Devices",
		Description: "List devices known to CloudVision", Params: []string{},
		Category: "Inventory", Tags: []string{"GET", "inventory"},
	},
	{
		ID: "inventory-device", Service: "cloudvision", Method: "GET",
		Path:        "/api/resources/inventory/v1/Device",
		Description: "Get one device by serial number", Params: []string{"key.deviceId"},
		Category: "Inventory", Tags: []string{"GET", "inventory"},
	},
	{
		ID: "events", Service: "cloudvision", Method: "GET",
		Path:        "/api/resources/event/v1/Events",
		Description: "List CloudVision events", Params: []string{},
		Category: "Events", Tags: []string{"GET", "event"},
	},
	{
		ID: "system-state", Service: "eos_rest", Method: "GET",
		Path:        "/restconf/data/openconfig-system:system/state",
		Description: "Get OpenConfig system state", Params: []string{},
		Category: "System", Tags: []string{"GET", "system", "status"},
	},
	{
		ID: "interface-state", Service: "eos_rest", Method: "GET",
		Path:        "/restconf/data/openconfig-interfaces:interfaces/interface={name}/state",
		Description: "Get OpenConfig state of one interface", Params: []string{"name"},
		Category: "Interfaces", Tags: []string{"GET", "interfaces", "status"},
	},
	{
		ID: "subscribe", Service: "telemetry", Method: "GET", Path: "/aeris/v1/connection",
		Description: "Subscribe to a telemetry path for a short window",
		Params:      []string{"path"},
		Category:    "Streaming", Tags: []string{"GET", "streaming"},
	},
}

// Builtin returns the starter catalog.
func Builtin() model.APICatalog {
	cat := model.NewAPICatalog()
	for _, def := range builtinDefinitions {
		// definitions above are valid by construction
		_ = cat.Add(cloneDef(def))
	}
	return cat
}

// BuiltinSource serves Builtin as a Source.
var BuiltinSource Source = SourceFunc(func(ctx context.Context) (model.APICatalog, error) {
	return Builtin(), nil
})
