// Package http provides request and response helpers for the introspection
// endpoints.
//
// # Request
//
//	req := gohttp.NewRequest(r)
//
//	var body struct {
//	    Expr  string `json:"expr"`
//	    Scope string `json:"scope"`
//	}
//	if err := req.Bind(&body); err != nil { ... }
//
//	typ  := req.Query("type")      // "?type=~IDBConn"
//	name := req.RouteParam("name") // chi route param
//
// # Response
//
//	res := gohttp.NewResponse(w)
//
//	res.JSON(200, data)           // raw JSON with status
//	res.Success(data)             // 200 {"data": ...}
//	res.Created(data)             // 201 {"data": ...}
//	res.NoContent()               // 204
//
//	res.Error(400, "bad input")   // {"message": "bad input"}
//	res.NotFound()                // 404 {"message": "Not found."}
//	res.ServerError()             // 500 {"message": "Server Error."}
//	res.ValidationError(bag)      // 422 {"errors": {"field": ["msg"]}}
//	res.Failure(err)              // status from the error code
//
// # Container errors
//
// Failure maps error codes to statuses:
//
//	CLASS_NOT_FOUND, FACTORY_NOT_FOUND, METHOD_NOT_FOUND, SCOPE_NOT_FOUND → 404
//	MALFORMED_EXPRESSION, INVALID_INJECTION                                → 422
//	PRIVATE_CLASS                                                          → 403
//	DUPLICATE_SCOPE, SCOPE_REFERRED, SCOPE_DESTROYED, CYCLIC_DEPENDENCY    → 409
//	anything else                                                          → 500
package http
