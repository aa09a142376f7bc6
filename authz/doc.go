// Package authz derives what an actor may do from its role and its
// relationship to a resource.
//
// Abilities are a pure function of (role, actor id). Rules are an ordered
// list of typed Allow/Deny entries; a request is allowed when at least one
// Allow rule matches and no Deny rule matches, regardless of declaration
// order.
//
// # What this package must NOT do
//
//   - Cache abilities across actors or requests.
//   - Read any state beyond the Actor and Resource passed in.
package authz
