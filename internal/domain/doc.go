// Package domain models the data that flows from an EPA SWMM simulation report
// onto a GeoJSON point dataset.
//
// # Data Source
//
// Reports are the plain-text ".rpt" files the SWMM engine writes after a run.
// The upstream simulation service runs the engine, leaves the report next to
// the input file, and publishes a job naming the report, the GeoJSON dataset
// to enrich and where to write the result.
//
// # Report Conventions
//
// A report is a sequence of titled summary tables. Each title is framed by
// asterisk rules, followed by a dashed rule, column headers, another dashed
// rule and fixed-width rows:
//
//	  ******************
//	  Node Depth Summary
//	  ******************
//
//	  ---------------------------------------------------------------------------------
//	                                 Average  Maximum  Maximum  Time of Max    Reported
//	                                   Depth    Depth      HGL   Occurrence   Max Depth
//	  Node                 Type       Meters   Meters   Meters  days hr:min      Meters
//	  ---------------------------------------------------------------------------------
//	  J1                   JUNCTION     0.12     0.45    10.45     0  02:15        0.45
//
// Depth rows carry the node ID, node type, average depth (column 2) and the
// reported maximum depth (last column). Which of the two is read is the
// [DepthColumn] policy; it is chosen once per deployment and never mixed.
//
// Flooding rows carry the node ID, hours flooded, maximum rate, the time of
// the maximum as two tokens, total flood volume (column 5, in 10^6 litres)
// and maximum ponded depth. A volume of 0.000 means the node did not flood
// and the row is dropped.
//
// The table ends at the next asterisk rule. Units in the header line depend on
// the flow units of the model; the default markers assume SI (CMS) units.
//
// # Join Key
//
// Features are matched by the EXP_NO property, which holds the same
// identifier SWMM uses for the node.
//
// # Severity Classification
//
// Flood volumes are bucketed into three classes with Jenks natural breaks;
// class 1 is the least severe. Values equal to a break fall into the lower
// class.
package domain
