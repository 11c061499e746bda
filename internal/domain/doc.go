// Package domain models RNLI lifeboat "returns of service" incident data.
//
// # Data Source
//
// Returns of service are published by the RNLI as an ArcGIS feature layer and
// exported as a GeoJSON FeatureCollection. Each feature is one lifeboat launch
// with a point geometry at the incident position and a flat attribute table.
//
// # Attribute Conventions
//
// Identity:
//
//	OBJECTID   integer row identifier assigned by ArcGIS, unique per export.
//
// Classification:
//
//	Activity   what the casualty was doing, upper case, e.g. "SUSPECTED SELF HARM",
//	           "SAILING", "WALKING".
//	AIC        the "Additional Information Code" summarising the outcome, mixed
//	           case, e.g. "Hoax and false alarm", "Person in danger".
//
// Coordinates:
//
//	GeoJSON positions are [x, y] = [longitude, latitude] in WGS-84.
//	Latitude is always taken from y and Longitude from x. Swapping them
//	silently moves UK coastal incidents into the Indian Ocean.
//
// Administrative fields added by ArcGIS editing carry no analytic value and
// are dropped once coordinates have been extracted:
//
//	GlobalID, CreationDate, Creator, EditDate, Editor, geometry
//
// # Harm Subset
//
// The harm subset is every record whose Activity is "SUSPECTED SELF HARM"
// and whose AIC is not "Hoax and false alarm". A record with a null AIC is
// kept; a record with a null Activity is not.
//
// # Schema Inference
//
// Tables are persisted with one column per attribute. Column storage kinds
// are inferred across every record so the full table and the subset share a
// schema:
//
//	integer  all non-null values are whole numbers or booleans
//	real     all non-null values are numbers
//	text     anything else, including all-null columns
//
// OBJECTID leads the column list, other attributes follow in name order, and
// Latitude and Longitude close it.
package domain
