package backend

// API endpoints of the portal backend
const (
	adminPrefix = "/admin"

	endpointMasterData       = adminPrefix + "/master-data"        // GET
	endpointBulkCreate       = adminPrefix + "/%s/bulk"            // POST - entity
	endpointPanelsAutoAssign = adminPrefix + "/panels/auto-assign" // POST
	endpointPanelsAutoCreate = adminPrefix + "/panels/auto-create" // POST
)
