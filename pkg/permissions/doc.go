// Package permissions implements the permission catalog and grant evaluation.
//
// # Overview
//
// A Permission is a catalog entry with a name and a declared Type. Subjects
// (users) carry Grants: a map from permission name to either a boolean or a
// list of wildcard patterns.
//
//	grants := permissions.Grants{
//		"modify users": permissions.BoolGrant(true),
//		"access app":   permissions.PatternGrant("charlie/*"),
//	}
//
// # Evaluation
//
// Evaluator.Can resolves a request against grants:
//
//	eval := permissions.NewEvaluator(0)
//	eval.Can(grants, "access app", permissions.StringValue("charlie/foo")) // true
//	eval.Can(grants, "access app", permissions.StringValue("marak/foo"))   // false
//
// A boolean true "superuser" grant authorizes every permission.
//
// Patterns are matched case-insensitively; each * matches any sequence of
// characters and the match is anchored at both ends.
//
// # Mutation
//
// Allow and Disallow return an updated copy of a grant set after checking
// the value against the catalog type. Removing the last pattern of an array
// grant collapses it to false.
package permissions
