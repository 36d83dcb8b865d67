// Package expression evaluates Custom(expr) transition conditions (§4.1)
// against a WorkflowRun's flat context map.
//
// It uses the expr-lang/expr library to evaluate boolean expressions over
// the reserved keys the executor writes (success, exit_code, stdout, ...)
// and any variable a Set action has assigned. Expressions support:
//
//   - Variable access: success, exit_code, my_variable
//   - Comparisons: ==, !=, <, >, <=, >=
//   - Boolean logic: &&, ||, !
//   - Membership: "value" in array (built-in operator)
//   - Custom functions: has(array, element), includes(array, element)
//
// Example expressions:
//
//	success == true
//	exit_code == 0 && has(tags, "urgent")
//	!failure
//
// The evaluator caches compiled expressions for performance.
//
// Note: the expr library uses "contains" as a string operator (for substring
// matching), so use "in" or "has()" for array membership checks.
package expression
