// Package mappings loads the controlled-vocabulary tables used while
// processing packages: agreement definitions, degree abbreviations and
// disciplines, subject classification tuples, and the character
// substitutions applied to abstracts.
package mappings
