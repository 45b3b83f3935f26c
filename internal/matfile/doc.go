// Package matfile reads MATLAB Level 5 MAT-files (the format written by
// MATLAB's save -v7 and by scipy.io.savemat).
//
//	File Structure:
//	  [116 bytes: descriptive text]
//	  [8 bytes: subsystem data offset]
//	  [2 bytes: version (0x0100)]
//	  [2 bytes: endian indicator "IM" (little-endian) or "MI" (big-endian)]
//	  [data elements...]
//
//	Data element:
//	  [4 bytes: data type][4 bytes: number of bytes][data, padded to 8 bytes]
//	  Small element: [2 bytes: number of bytes][2 bytes: data type][4 bytes: data]
//
// Top-level elements are either miMATRIX (one named variable) or
// miCOMPRESSED (a zlib stream holding one miMATRIX element).
//
// Supported array classes: double, single, integer, char, logical, sparse,
// struct and cell. Numeric payloads are widened to float64 regardless of the
// storage type the writer picked. Complex arrays, objects, function handles
// and v7.3 (HDF5) files are rejected with ErrUnsupported.
//
// Example:
//
//	f, err := matfile.Open("EXIOBASE_3rx_aggLandUseExtensions_2010_pxp.mat")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	io, err := f.Variable("IO")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bundle := io.(*matfile.Struct)
//	fmt.Println(bundle.FieldNames())
package matfile
