package data

const (
	RouteIndex         string = "/"
	RouteEmployee      string = "/employee"
	RouteEmployeeId    string = RouteEmployee + "/{" + PathId + ":.*}"
	RouteEmployeeIdf   string = RouteEmployee + "/%s"
	RouteContact       string = "/contact"
	RouteFormHandler   string = "/form-handler"
	RouteVersion       string = "/version"
	RouteCache         string = "/cache"
	RouteCacheCounters string = RouteCache + "/counters"
	RouteTimers        string = "/timers"
	RouteMetrics       string = "/metrics"
	RouteReload        string = "/reload"
)

const PathId string = "id"

const HeaderCorrelationId string = "Correlation-Id"

const (
	TemplateIndex    string = "index"
	TemplateEmployee string = "employee"
	TemplateContact  string = "contact"
)

// TemplateNames lists every template the router renders
var TemplateNames = []string{TemplateIndex, TemplateEmployee, TemplateContact}

const (
	PageKeyIndex    string = "index"
	PageKeyContact  string = "contact"
	PageKeyEmployee string = "employee_"
)

type Error struct {
	Error string `json:"error"`
}
