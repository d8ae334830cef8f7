// Package body defines the data model shared by skeleton synthesis and
// cutout extraction: the 33 pose landmarks, keypoints and poses, and the
// taxonomy that folds the 24 raw segmentation labels into 14 part groups
// arranged in a parent tree under a single root.
//
// The taxonomy is a set of fixed tables. Call ValidateTaxonomy at startup;
// a broken table is a *ConfigurationError, never a runtime fault.
package body
