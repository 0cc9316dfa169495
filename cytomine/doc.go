// Package cytomine is a client for the Cytomine REST API.
//
// A Client signs every request with the HMAC scheme of Cytomine, using a
// public/private key pair. Models map single resources and Collections map
// paginated lists:
//
//	c, err := cytomine.NewClient(cytomine.Config{
//		Host:       "https://demo.cytomine.coop",
//		PublicKey:  pub,
//		PrivateKey: priv,
//	}, nil, log)
//	if err != nil {
//		return err
//	}
//	if err := c.Connect(ctx, 0); err != nil {
//		return err
//	}
//
//	projects := cytomine.NewProjectCollection()
//	if err := projects.Fetch(ctx, c); err != nil {
//		return err
//	}
//
//	images := cytomine.NewImageInstanceCollection()
//	err = images.FetchWithFilter(ctx, c, "project", projects.Items[0].ID)
package cytomine
