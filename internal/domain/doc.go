// Package domain holds the core types of the precipitation cleaning
// pipeline: raw and clean measurement rows, QC flag bits, imputation
// method labels, and the nullable working series the cascade operates on.
package domain
